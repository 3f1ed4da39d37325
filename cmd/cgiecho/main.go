// Command cgiecho is a dynamic-resource fixture: placed in the configured
// CGI directory with its executable bit set, it reads "sleep" and "value"
// out of QUERY_STRING, optionally sleeps, and writes a small HTML body to
// stdout. It exists so the dynamic-dispatch path and CGI execution timeout
// have something real to exercise in tests and manual runs, the way
// output.cgi?value=N&sleep=S stood in for a dynamic page in the original
// test harness.
package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

func main() {
	query, err := url.ParseQuery(os.Getenv("QUERY_STRING"))
	if err != nil {
		fmt.Println("<html><body>bad query string</body></html>")
		os.Exit(1)
	}

	if s := query.Get("sleep"); s != "" {
		if secs, err := strconv.ParseFloat(s, 64); err == nil && secs > 0 {
			time.Sleep(time.Duration(secs * float64(time.Second)))
		}
	}

	value := query.Get("value")
	if value == "" {
		value = "0"
	}

	fmt.Printf("<html><body><p>value=%s</p></body></html>", value)
}
