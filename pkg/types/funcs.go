package types

// Func identifies a builtin function of a KindCall node.
type Func uint8

// Builtin functions. FuncCustom marks calls resolved against a function
// registry by name.
const (
	FuncCustom Func = iota
	FuncLag
	FuncAvg
	FuncSum
	FuncMin
	FuncMax
	FuncStdDev
	FuncEMA
	FuncRSI
	FuncMomentum
	FuncRising
	FuncAbs
	FuncSqrt
	FuncLog
	FuncExp
	FuncPercent
	FuncDayOfWeek
	FuncDayOfMonth
	FuncDayOfYear
	FuncMonth
	FuncYear
)

type funcInfo struct {
	name  string
	arity int
	// optional is the number of trailing operands the parser may omit;
	// omitted operands default to an integer zero.
	optional int
}

var funcTable = [...]funcInfo{
	FuncCustom:     {"custom", -1, 0},
	FuncLag:        {"lag", 2, 0},
	FuncAvg:        {"avg", 3, 1},
	FuncSum:        {"sum", 3, 1},
	FuncMin:        {"min", 3, 1},
	FuncMax:        {"max", 3, 1},
	FuncStdDev:     {"stddev", 3, 1},
	FuncEMA:        {"ema", 3, 1},
	FuncRSI:        {"rsi", 2, 1},
	FuncMomentum:   {"momentum", 3, 1},
	FuncRising:     {"rising", 2, 0},
	FuncAbs:        {"abs", 1, 0},
	FuncSqrt:       {"sqrt", 1, 0},
	FuncLog:        {"log", 1, 0},
	FuncExp:        {"exp", 1, 0},
	FuncPercent:    {"percent", 2, 0},
	FuncDayOfWeek:  {"dayofweek", 0, 0},
	FuncDayOfMonth: {"dayofmonth", 0, 0},
	FuncDayOfYear:  {"dayofyear", 0, 0},
	FuncMonth:      {"month", 0, 0},
	FuncYear:       {"year", 0, 0},
}

var funcByName = func() map[string]Func {
	m := make(map[string]Func, len(funcTable))
	for i, info := range funcTable {
		if Func(i) != FuncCustom {
			m[info.name] = Func(i)
		}
	}
	return m
}()

// LookupFunc returns the builtin registered under name.
func LookupFunc(name string) (Func, bool) {
	f, ok := funcByName[name]
	return f, ok
}

// String returns the Gondola name of the function.
func (f Func) String() string {
	if int(f) < len(funcTable) {
		return funcTable[f].name
	}
	return "unknown"
}

// Arity returns the number of operands the function takes, -1 for
// custom functions.
func (f Func) Arity() int {
	if int(f) < len(funcTable) {
		return funcTable[f].arity
	}
	return -1
}

// MinArity returns the number of operands a call must spell out.
func (f Func) MinArity() int {
	if int(f) < len(funcTable) {
		return funcTable[f].arity - funcTable[f].optional
	}
	return -1
}

// IsWindow reports whether f aggregates a quote field over a window of
// days.
func (f Func) IsWindow() bool {
	switch f {
	case FuncAvg, FuncSum, FuncMin, FuncMax, FuncStdDev, FuncEMA, FuncMomentum:
		return true
	}
	return false
}

// IsDate reports whether f reads the calendar date of the evaluation day.
func (f Func) IsDate() bool {
	return f >= FuncDayOfWeek && f <= FuncYear
}
