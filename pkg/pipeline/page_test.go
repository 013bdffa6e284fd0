package pipeline

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

func TestErrorPageGolden(t *testing.T) {
	page := ErrorPage(ErrorTitle, "boom", "stack trace line 1\nstack trace line 2")

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "error_page", []byte(page))
}

func TestErrorPageEscapes(t *testing.T) {
	page := ErrorPage(ErrorTitle, `<script>alert("x")</script>`, "a < b & c")

	if strings.Contains(page, "<script>") {
		t.Errorf("worker output must not become markup: %s", page)
	}
	for _, want := range []string{
		"<pre>&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt;</pre>",
		"<pre>a &lt; b &amp; c</pre>",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q:\n%s", want, page)
		}
	}
}
