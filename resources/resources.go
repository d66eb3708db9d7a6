package resources

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/wudi/bookingpdf/ir/raw"
)

var (
	ErrNoPages      = errors.New("resources: document has no pages")
	ErrPageNotFound = errors.New("resources: page index out of range")
	ErrNoFonts      = errors.New("resources: page has no /Resources/Font")
)

type ResourceCategory string

const CategoryFont ResourceCategory = "Font"

// Page is a leaf of the page tree together with its ancestors, nearest
// first, which supply inherited attributes.
type Page struct {
	Ref       raw.ObjectRef
	Dict      *raw.DictObj
	ancestors []*raw.DictObj
}

type Scope interface {
	LocalResources() *raw.DictObj
	ParentScope() Scope
}

type dictScope struct {
	doc   *raw.Document
	nodes []*raw.DictObj
}

func (s dictScope) LocalResources() *raw.DictObj {
	if len(s.nodes) == 0 {
		return nil
	}
	res, _ := s.doc.ResolveDict(s.nodes[0].KV["Resources"])
	return res
}

func (s dictScope) ParentScope() Scope {
	if len(s.nodes) <= 1 {
		return nil
	}
	return dictScope{doc: s.doc, nodes: s.nodes[1:]}
}

// PageScope returns the resource scope chain of page: the page first, then
// each Pages node up to the root.
func PageScope(doc *raw.Document, page *Page) Scope {
	nodes := append([]*raw.DictObj{page.Dict}, page.ancestors...)
	return dictScope{doc: doc, nodes: nodes}
}

// PageAt walks the page tree from the catalog and returns the page with
// the given zero-based index.
func PageAt(doc *raw.Document, index int) (*Page, error) {
	catalog, ok := doc.ResolveDict(doc.Trailer.KV["Root"])
	if !ok {
		return nil, errors.New("resources: catalog missing")
	}
	pagesObj, ok := catalog.Get("Pages")
	if !ok {
		return nil, ErrNoPages
	}
	count := 0
	var found *Page
	visited := make(map[raw.ObjectRef]bool)
	var walk func(obj raw.Object, ancestors []*raw.DictObj) error
	walk = func(obj raw.Object, ancestors []*raw.DictObj) error {
		var ref raw.ObjectRef
		if r, ok := obj.(raw.RefObj); ok {
			if visited[r.R] {
				return fmt.Errorf("resources: page tree cycle at %s", r.R)
			}
			visited[r.R] = true
			ref = r.R
		}
		node, ok := doc.ResolveDict(obj)
		if !ok {
			return nil
		}
		kids, hasKids := doc.ResolveArray(node.KV["Kids"])
		typ, _ := node.Name("Type")
		if typ == "Page" || (!hasKids && typ != "Pages") {
			if count == index {
				found = &Page{Ref: ref, Dict: node, ancestors: ancestors}
			}
			count++
			return nil
		}
		if !hasKids {
			return nil
		}
		chain := append([]*raw.DictObj{node}, ancestors...)
		for _, kid := range kids.Items {
			if found != nil {
				return nil
			}
			if err := walk(kid, chain); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(pagesObj, nil); err != nil {
		return nil, err
	}
	if found == nil {
		if count == 0 {
			return nil, ErrNoPages
		}
		return nil, ErrPageNotFound
	}
	return found, nil
}

type Resolver interface {
	Category(ctx context.Context, category ResourceCategory, page *Page) (*raw.DictObj, error)
}

type resolverImpl struct{ doc *raw.Document }

func NewResolver(doc *raw.Document) Resolver { return &resolverImpl{doc: doc} }

// Category returns the nearest resource sub-dictionary of the given kind.
// A page's own /Resources replaces inherited ones entirely.
func (r *resolverImpl) Category(ctx context.Context, category ResourceCategory, page *Page) (*raw.DictObj, error) {
	for scope := PageScope(r.doc, page); scope != nil; scope = scope.ParentScope() {
		res := scope.LocalResources()
		if res == nil {
			continue
		}
		cat, ok := r.doc.ResolveDict(res.KV[string(category)])
		if !ok {
			break
		}
		return cat, nil
	}
	if category == CategoryFont {
		return nil, ErrNoFonts
	}
	return nil, fmt.Errorf("resources: no /%s resources", category)
}

// FontRef is one entry of a page's font resources.
type FontRef struct {
	Name string // resource name with leading slash, e.g. "/TT0"
	Ref  raw.ObjectRef
	Dict *raw.DictObj
}

// Fonts lists the font resources of page sorted by name.
func Fonts(ctx context.Context, doc *raw.Document, page *Page) ([]FontRef, error) {
	cat, err := NewResolver(doc).Category(ctx, CategoryFont, page)
	if err != nil {
		return nil, err
	}
	keys := cat.Keys()
	sort.Strings(keys)
	out := make([]FontRef, 0, len(keys))
	for _, k := range keys {
		obj := cat.KV[k]
		d, ok := doc.ResolveDict(obj)
		if !ok {
			continue
		}
		fr := FontRef{Name: "/" + k, Dict: d}
		if ref, ok := obj.(raw.RefObj); ok {
			fr.Ref = ref.R
		}
		out = append(out, fr)
	}
	return out, nil
}

// ContentStreams returns the page's content streams in drawing order.
func ContentStreams(doc *raw.Document, page *Page) ([]*raw.StreamObj, error) {
	obj, ok := page.Dict.Get("Contents")
	if !ok {
		return nil, errors.New("resources: page has no /Contents")
	}
	var items []raw.Object
	if arr, ok := doc.ResolveArray(obj); ok {
		items = arr.Items
	} else {
		items = []raw.Object{obj}
	}
	var out []*raw.StreamObj
	for _, it := range items {
		st, ok := doc.Resolve(it).(*raw.StreamObj)
		if !ok {
			return nil, fmt.Errorf("resources: /Contents entry is not a stream")
		}
		out = append(out, st)
	}
	if len(out) == 0 {
		return nil, errors.New("resources: page has empty /Contents")
	}
	return out, nil
}
