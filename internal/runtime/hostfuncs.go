package runtime

import (
	"context"

	"github.com/risor-io/risor/object"
	"go.uber.org/zap"

	"github.com/jward/docket/internal/resolve"
)

// makePseudoIDFn creates the "pseudo_id" host function.
//
// pseudo_id(fields) → "~{...}"
//
// Scripts use it to replace a scraped reference with a natural-key match,
// e.g. record["from_organization"] = pseudo_id({"classification": "upper"}).
func makePseudoIDFn() *object.Builtin {
	return object.NewBuiltin("pseudo_id", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("pseudo_id", 1, len(args))
		}
		m, ok := args[0].(*object.Map)
		if !ok {
			return object.Errorf("pseudo_id: fields must be a map, got %s", args[0].Type())
		}
		fields, ok := m.Interface().(map[string]any)
		if !ok || len(fields) == 0 {
			return object.Errorf("pseudo_id: fields must be a non-empty map")
		}
		return object.NewString(resolve.PseudoID(fields))
	})
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	log *zap.Logger
}

func (l *logObject) Info(msg string) {
	l.log.Info(msg)
}

func (l *logObject) Warn(msg string) {
	l.log.Warn(msg)
}

func (l *logObject) Error(msg string) {
	l.log.Error(msg)
}
