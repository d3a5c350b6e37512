// Package formatregistry holds the immutable, globally shared table that
// maps a trailing URL extension (or a "type=" query override) to a
// formatter identity and a Content-Type string (component B).
package formatregistry

// FormatterKind identifies which formatter (internal/formatters) handles a
// command's reply. The registry only carries the identity; the formatters
// package owns the actual serialization logic so this package stays free
// of a dependency on internal/reply.
type FormatterKind int

const (
	// KindJSON serializes replies as a single JSON object.
	KindJSON FormatterKind = iota
	// KindRaw serializes replies as RESP-like framing.
	KindRaw
	// KindCustomType serializes a bulk reply (or [value, content-type]
	// pair) as a raw body with a caller- or config-chosen Content-Type.
	KindCustomType
)

// Descriptor is one immutable entry in the registry.
type Descriptor struct {
	Ext         string
	Kind        FormatterKind
	ContentType string
}

// table is ordered by first-match and never mutated after init().
var table = []Descriptor{
	{Ext: "json", Kind: KindJSON, ContentType: "application/json"},
	{Ext: "raw", Kind: KindRaw, ContentType: "binary/octet-stream"},
	{Ext: "txt", Kind: KindCustomType, ContentType: "text/plain"},
	{Ext: "html", Kind: KindCustomType, ContentType: "text/html"},
	{Ext: "xhtml", Kind: KindCustomType, ContentType: "application/xhtml+xml"},
	{Ext: "xml", Kind: KindCustomType, ContentType: "text/xml"},
	{Ext: "png", Kind: KindCustomType, ContentType: "image/png"},
	{Ext: "jpg", Kind: KindCustomType, ContentType: "image/jpeg"},
	{Ext: "jpeg", Kind: KindCustomType, ContentType: "image/jpeg"},
}

var byExt map[string]Descriptor

// jsonDescriptor is the default used when neither a "type=" override nor a
// recognized extension is present.
var jsonDescriptor Descriptor

func init() {
	byExt = make(map[string]Descriptor, len(table))
	for _, d := range table {
		byExt[d.Ext] = d
	}
	jsonDescriptor = byExt["json"]
}

// Resolve picks a Descriptor following the precedence order: an explicit
// "type=M/N" query override wins (forcing CustomType with M/N as the
// Content-Type), then a matching extension, then JSON by default.
func Resolve(ext string, typeOverride string) Descriptor {
	if typeOverride != "" {
		return Descriptor{Ext: ext, Kind: KindCustomType, ContentType: typeOverride}
	}
	if d, ok := byExt[ext]; ok {
		return d
	}
	return jsonDescriptor
}
