package vm

import (
	"strconv"
	"strings"
)

// String renders r in FullForm: f(a, b), quoted strings, plain integers.
func (r Ref) String() string {
	var b strings.Builder
	writeFullForm(&b, r)
	return b.String()
}

func writeFullForm(b *strings.Builder, r Ref) {
	switch r.kind {
	case KindNull:
		b.WriteString("Null")
	case KindUndefined:
		b.WriteString("Undefined")
	case KindAbort:
		b.WriteString("$Aborted")
	case KindInt:
		b.WriteString(strconv.FormatInt(int64(r.i), 10))
	case KindNumber:
		b.WriteString(r.obj.(*Number).n.String())
	case KindString:
		b.WriteString(strconv.Quote(r.Str()))
	case KindSymbol:
		b.WriteString(r.Symbol().name)
	case KindDispatch:
		b.WriteString("DispatchTable(")
		b.WriteString(strconv.Itoa(r.Dispatch().Len()))
		b.WriteString(")")
	case KindExpr:
		e := r.Expr()
		writeFullForm(b, e.Head())
		b.WriteByte('(')
		for i := 1; i <= e.Len(); i++ {
			if i > 1 {
				b.WriteString(", ")
			}
			writeFullForm(b, e.Item(i))
		}
		b.WriteByte(')')
	}
}
