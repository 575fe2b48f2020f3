package ir

// ResultType infers the return type of a builtin member or operator from
// the static types of its receiver (or first operand) and arguments.
// IR producers use it when they create builtin calls with Member or Operator.
func (b *BuiltIns) ResultType(name string, recv Type, args []Type) Type {
	rc := recv.Class()
	switch name {
	case "equals", "less", "lessOrEqual", "greater", "greaterOrEqual", "EQEQ", "EQEQEQ",
		"ieee754equals", "contains", "isEmpty", "hasNext", "not", "startsWith", "endsWith":
		return b.Boolean.DefaultType()
	case "and", "or", "xor":
		if rc == b.Boolean {
			return b.Boolean.DefaultType()
		}
		return recv.MakeNotNull()
	case "compareTo", "hashCode", "length", "size", "ordinal", "next", "nextInt", "first", "last", "step", "indexOf", "code":
		return b.Int.DefaultType()
	case "toString", "substring", "uppercase", "lowercase", "repeat", "name", "trim":
		return b.String.DefaultType()
	case "toByte":
		return b.Byte.DefaultType()
	case "toShort":
		return b.Short.DefaultType()
	case "toInt":
		return b.Int.DefaultType()
	case "toLong":
		return b.Long.DefaultType()
	case "toFloat":
		return b.Float.DefaultType()
	case "toDouble":
		return b.Double.DefaultType()
	case "toChar":
		return b.Char.DefaultType()
	case "toUByte":
		return b.UByte.DefaultType()
	case "toUShort":
		return b.UShort.DefaultType()
	case "toUInt":
		return b.UInt.DefaultType()
	case "toULong":
		return b.ULong.DefaultType()
	case "rangeTo", "until", "downTo":
		return b.IntRange.DefaultType()
	case "iterator":
		return b.IntIterator.DefaultType()
	case "get":
		if rc == b.String {
			return b.Char.DefaultType()
		}
		if rc == b.Array && len(recv.Arguments) == 1 {
			return recv.Arguments[0]
		}
		return b.AnyNType()
	case "set", "noWhenBranchMatchedException":
		return b.Unit.DefaultType()
	case "CHECK_NOT_NULL":
		if len(args) == 0 {
			return recv.MakeNotNull()
		}
		return args[0].MakeNotNull()
	case "illegalArgumentException", "THROW_CCE", "THROW_NPE":
		return b.Nothing.DefaultType()
	case "shl", "shr", "ushr", "inv", "inc", "dec":
		return recv.MakeNotNull()
	case "unaryMinus", "unaryPlus":
		if rc == b.Byte || rc == b.Short {
			return b.Int.DefaultType()
		}
		return recv.MakeNotNull()
	case "plus", "minus", "times", "div", "rem", "mod":
		var arg Type
		if len(args) > 0 {
			arg = args[0]
		}
		return b.arithmeticResult(name, recv, arg)
	}
	return b.AnyNType()
}

func (b *BuiltIns) arithmeticResult(name string, recv, arg Type) Type {
	rc, ac := recv.Class(), arg.Class()
	switch {
	case rc == b.String:
		return b.String.DefaultType()
	case rc == b.Char && ac == b.Char && name == "minus":
		return b.Int.DefaultType()
	case rc == b.Char:
		return b.Char.DefaultType()
	case b.IsUnsigned(rc):
		if b.IsUnsigned(ac) && b.unsignedRank(ac) > b.unsignedRank(rc) {
			return ac.DefaultType()
		}
		if b.unsignedRank(rc) < b.unsignedRank(b.UInt) {
			return b.UInt.DefaultType()
		}
		return rc.DefaultType()
	}
	if rc == nil || ac == nil {
		return recv
	}
	if name == "mod" && b.numericRank(ac) < b.numericRank(b.Int) {
		// mod keeps the divisor type
		return ac.DefaultType()
	}
	rank := b.numericRank(rc)
	if r := b.numericRank(ac); r > rank {
		rank = r
	}
	if rank < b.numericRank(b.Int) {
		rank = b.numericRank(b.Int)
	}
	return b.numericByRank(rank).DefaultType()
}

func (b *BuiltIns) numericRank(c *Class) int {
	switch c {
	case b.Byte:
		return 1
	case b.Short:
		return 2
	case b.Int:
		return 3
	case b.Long:
		return 4
	case b.Float:
		return 5
	case b.Double:
		return 6
	}
	return 0
}

func (b *BuiltIns) numericByRank(rank int) *Class {
	return [...]*Class{b.Int, b.Byte, b.Short, b.Int, b.Long, b.Float, b.Double}[rank]
}

func (b *BuiltIns) unsignedRank(c *Class) int {
	switch c {
	case b.UByte:
		return 1
	case b.UShort:
		return 2
	case b.UInt:
		return 3
	case b.ULong:
		return 4
	}
	return 0
}

// IsNumeric reports whether c is one of the signed numeric classes.
func (b *BuiltIns) IsNumeric(c *Class) bool { return b.numericRank(c) > 0 }
