package syncdata

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/syncmem/pkg/core/dtypes/bfloat16"
	"github.com/gomlx/syncmem/pkg/core/syncmem"
	"github.com/x448/float16"
)

// maxSummaryValues is the number of values printed by Summary before using an ellipsis.
const maxSummaryValues = 6

// String implements fmt.Stringer. It never triggers a transfer, see Summary.
func (d *SyncData[T]) String() string {
	return d.Summary(4)
}

// Summary returns a one-line summary of the SyncData: dtype, number of elements, size, head and, if the host is
// authoritative, the first values. The values are printed with the given precision for floats.
//
// It doesn't trigger any transfer or change the head: if the values are only on the device, they are not shown.
func (d *SyncData[T]) Summary(precision int) string {
	if d == nil || d.mem == nil {
		return "SyncData(nil)"
	}
	var buf bytes.Buffer
	w := func(format string, args ...any) { _, _ = fmt.Fprintf(&buf, format, args...) }
	if d.mem.IsFinalized() {
		w("SyncData[%s](finalized)", d.DType())
		return buf.String()
	}
	w("SyncData[%s](count=%d, %s, head=%s", d.DType(), d.count, humanize.IBytes(uint64(d.Size())), d.Head())
	if d.Head() == syncmem.HostValid {
		// Host is already authoritative, so HostData is a no-op.
		host := d.MustHostData()
		w(", values={")
		n := len(host)
		for ii := 0; ii < n; ii++ {
			if n > maxSummaryValues && ii == maxSummaryValues/2 {
				w(", ...")
				ii = n - maxSummaryValues/2
			}
			if ii > 0 {
				w(", ")
			}
			writeValue(w, reflect.ValueOf(host[ii]), precision)
		}
		w("}")
	}
	w(")")
	return buf.String()
}

var (
	typeFloat16  = reflect.TypeOf(float16.Float16(0))
	typeBFloat16 = reflect.TypeOf(bfloat16.BFloat16(0))
)

// writeValue with appropriate formatting.
func writeValue(w func(format string, args ...any), v reflect.Value, precision int) {
	if v.Type() == typeFloat16 {
		w("%.*g", precision, v.Interface().(float16.Float16).Float32())
		return
	} else if v.Type() == typeBFloat16 {
		w("%.*g", precision, v.Interface().(bfloat16.BFloat16).Float32())
		return
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		w("%d", v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		w("%d", v.Uint())
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		w("(%.*g+%.*gi)", precision, real(c), precision, imag(c))
	case reflect.Bool:
		w("%v", v.Bool())
	default:
		w("%.*g", precision, v.Interface())
	}
}
