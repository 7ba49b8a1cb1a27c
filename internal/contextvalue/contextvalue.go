package contextvalue

import (
	"github.com/enqbot/enqbot/backend/converter"
	"github.com/enqbot/enqbot/internal/sync"
)

type converterKey int

var converterCtxKey converterKey

func WithConverter(ctx sync.Context, cv converter.Converter) sync.Context {
	return sync.WithValue(ctx, converterCtxKey, cv)
}

func Converter(ctx sync.Context) converter.Converter {
	if cv, ok := ctx.Value(converterCtxKey).(converter.Converter); ok {
		return cv
	}

	return converter.DefaultConverter
}
