package graph

import (
	"github.com/iris-run/iris/internal/bus"
	"github.com/iris-run/iris/internal/config"
)

// structural keys never get forwarded as parameter emits: type and
// version select the plugin descriptor, inputs and outputs feed the
// priority solver.
var structuralKeys = map[string]bool{
	"type":    true,
	"version": true,
	"inputs":  true,
	"outputs": true,
}

var (
	tagString  = bus.TypeTagOf[string]()
	tagInt64   = bus.TypeTagOf[int64]()
	tagFloat64 = bus.TypeTagOf[float64]()
	tagBool    = bus.TypeTagOf[bool]()
	tagToken   = bus.TypeTagOf[config.Token]()
)

// emitModuleParams forwards every non-structural key of decl as a bus
// emit under "<moduleName>::<key>", so modules that subscribed during
// Subscribe observe their parameters before Initialize runs.
func emitModuleParams(moduleName string, decl config.Token) {
	for _, key := range decl.Keys() {
		if structuralKeys[key] {
			continue
		}
		emitParam(moduleName, key, decl.Get(key))
	}
}

func emitParam(moduleName, key string, tok config.Token) {
	k := bus.NewKey(moduleName, "::", key)

	if tok.IsArray() {
		bus.Emit(k, tagToken, tok, 0)
		for i := 0; i < tok.Size(); i++ {
			emitScalarForms(k, tok.Index(i), i)
		}
		return
	}
	bus.Emit(k, tagToken, tok, 0)
	emitScalarForms(k, tok, 0)
}

func emitScalarForms(key bus.Key, tok config.Token, index int) {
	bus.Emit(key, tagString, tok.String(), index)
	bus.Emit(key, tagInt64, tok.Number(), index)
	bus.Emit(key, tagFloat64, tok.Decimal(), index)
	bus.Emit(key, tagBool, tok.Boolean(), index)
}

// stringList reads a structural key that may be a single string or an
// array of strings (inputs/outputs), returning its elements.
func stringList(tok config.Token) []string {
	if !tok.IsValid() {
		return nil
	}
	if tok.IsArray() {
		out := make([]string, 0, tok.Size())
		for i := 0; i < tok.Size(); i++ {
			out = append(out, tok.Index(i).String())
		}
		return out
	}
	return []string{tok.String()}
}
