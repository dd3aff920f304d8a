package convert

import (
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/json"
	"github.com/tdewolff/minify/v2/xml"
)

var minifier = newMinifier()

func newMinifier() *minify.M {
	m := minify.New()
	m.AddFunc("application/json", json.Minify)
	m.AddFunc("application/xml", xml.Minify)
	return m
}

// compact strips insignificant whitespace from XML and JSON output.
func compact(format Format, data []byte) ([]byte, error) {
	return minifier.Bytes(format.MIME(), data)
}
