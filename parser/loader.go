package parser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wudi/bookingpdf/filters"
	"github.com/wudi/bookingpdf/ir/raw"
	"github.com/wudi/bookingpdf/scanner"
	"github.com/wudi/bookingpdf/xref"
)

type ObjectLoader interface {
	Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error)
}

// objectLoader reads objects from an in-memory file through its xref table.
// Decoded object streams are cached by stream number.
type objectLoader struct {
	data    []byte
	table   xref.Table
	syntax  *syntax
	filters *filters.Pipeline
	mu      sync.Mutex
	objstm  map[int][]raw.Object
}

func newObjectLoader(data []byte, table xref.Table, pipeline *filters.Pipeline) *objectLoader {
	o := &objectLoader{data: data, table: table, filters: pipeline, objstm: make(map[int][]raw.Object)}
	// Indirect /Length values never point at streams, so a plain syntax
	// without its own resolver is enough to read them.
	plain := &syntax{}
	o.syntax = &syntax{length: func(ref raw.ObjectRef) (int64, bool) {
		e, ok := table.Lookup(ref.Num)
		if !ok || e.Kind != xref.EntryInUse {
			return 0, false
		}
		_, obj, err := plain.ParseIndirectAt(data, e.Offset)
		if err != nil {
			return 0, false
		}
		n, ok := obj.(raw.NumberObj)
		return n.Int(), ok
	}}
	return o
}

func (o *objectLoader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	e, ok := o.table.Lookup(ref.Num)
	if !ok {
		return nil, fmt.Errorf("object %d not found in xref", ref.Num)
	}
	switch e.Kind {
	case xref.EntryInUse:
		got, obj, err := o.syntax.ParseIndirectAt(o.data, e.Offset)
		if err != nil {
			return nil, err
		}
		if got.Num != ref.Num {
			return nil, fmt.Errorf("object header mismatch: want %d, found %s", ref.Num, got)
		}
		return obj, nil
	case xref.EntryCompressed:
		return o.loadFromObjectStream(ctx, e.Stream, e.Index, ref.Num)
	}
	return nil, fmt.Errorf("object %d is free", ref.Num)
}

func (o *objectLoader) loadFromObjectStream(ctx context.Context, streamNum, idx, objNum int) (raw.Object, error) {
	o.mu.Lock()
	objs, ok := o.objstm[streamNum]
	o.mu.Unlock()
	if !ok {
		var err error
		objs, err = o.readObjectStream(ctx, streamNum)
		if err != nil {
			return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
		}
		o.mu.Lock()
		o.objstm[streamNum] = objs
		o.mu.Unlock()
	}
	if idx < 0 || idx >= len(objs) || objs[idx] == nil {
		return nil, fmt.Errorf("object %d missing from object stream %d", objNum, streamNum)
	}
	return objs[idx], nil
}

func (o *objectLoader) readObjectStream(ctx context.Context, streamNum int) ([]raw.Object, error) {
	e, ok := o.table.Lookup(streamNum)
	if !ok || e.Kind != xref.EntryInUse {
		return nil, errors.New("object stream entry missing")
	}
	_, obj, err := o.syntax.ParseIndirectAt(o.data, e.Offset)
	if err != nil {
		return nil, err
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("object stream is not a stream")
	}
	n, _ := st.Dict.KV["N"].(raw.NumberObj)
	first, _ := st.Dict.KV["First"].(raw.NumberObj)
	data, err := o.filters.DecodeStream(ctx, st)
	if err != nil {
		return nil, err
	}
	if first.Int() < 0 || first.Int() > int64(len(data)) {
		return nil, errors.New("object stream First exceeds length")
	}

	s := scanner.New(data[:first.Int()], scanner.Config{})
	offsets := make([]int64, 0, n.Int())
	for i := int64(0); i < n.Int(); i++ {
		numTok, err1 := s.Next()
		offTok, err2 := s.Next()
		if err1 != nil || err2 != nil || numTok.Type != scanner.TokenNumber || offTok.Type != scanner.TokenNumber {
			break
		}
		offsets = append(offsets, first.Int()+offTok.Int)
	}

	objs := make([]raw.Object, len(offsets))
	for i, off := range offsets {
		obj, err := o.syntax.ParseObjectAt(data, off)
		if err != nil {
			continue
		}
		objs[i] = obj
	}
	return objs, nil
}
