// Package funcname определяет имена пользовательских функций для логов,
// метрик и спанов.
package funcname

import (
	"fmt"
	"runtime"

	"github.com/goccy/go-reflect"
)

// Of возвращает полное имя функции fn. Для nil-функции возвращается ее тип,
// для значения, не являющегося функцией, его тип в формате %T.
func Of(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return fmt.Sprintf("%T", fn)
	}
	if !v.IsNil() {
		if f := runtime.FuncForPC(v.Pointer()); f != nil {
			return f.Name()
		}
	}
	return v.Type().String()
}
