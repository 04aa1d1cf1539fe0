// Package htmlutil flattens upstream HTML fragments to plain text. The
// MapClick feeds embed markup and entity-encoded symbols inside item
// descriptions, which would otherwise defeat the temperature patterns.
package htmlutil

import (
	"github.com/k3a/html2text"
)

// ToText strips tags and decodes entities, preserving readable text.
func ToText(s string) string {
	return html2text.HTML2Text(s)
}
