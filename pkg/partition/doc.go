// Package partition splits the assets reachable from an entry into the ones
// that belong to a render target and the ones it merely points at.
//
// An asset is Internal when its destination path lies inside the output
// root, and External otherwise. References are followed only out of Internal
// assets, so the traversal stops at the boundary: an External asset is
// recorded but its own references are never fetched.
//
// # Traversal
//
// Reference lists may be expensive to produce (they can wait on a bundler),
// so [Partitioner] fetches them concurrently, up to Options.Concurrency at a
// time. Fetch results flow back over a channel into a single collector that
// owns the visited set and performs every classification. Each asset is
// classified exactly once no matter how many paths lead to it, and the final
// sets do not depend on the order in which fetches complete.
//
// # Memoization
//
// [Partitioner.Partition] is memoized by (entry, root). Concurrent calls for
// the same pair share one traversal; later calls return the stored
// [Result].
//
// # Visualization
//
// [ToDOT] and [RenderSVG] draw a partition as a Graphviz diagram, with
// External assets dashed.
package partition
