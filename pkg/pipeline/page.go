package pipeline

import (
	"fmt"
	"html"
)

// ErrorTitle heads every fallback page.
const ErrorTitle = "Error during rendering"

// ErrorPage renders the fallback document for a failed render. Message and
// logs are HTML-escaped so that worker output shows up as text.
func ErrorPage(title, message, logs string) string {
	return fmt.Sprintf("<h1>%s</h1>\n<h2>Message</h2>\n<pre>%s</pre>\n<h2>Logs</h2>\n<pre>%s</pre>",
		html.EscapeString(title),
		html.EscapeString(message),
		html.EscapeString(logs))
}
