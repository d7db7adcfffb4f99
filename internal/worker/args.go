package worker

import (
	"fmt"
	"strconv"
)

// Arg looks a parameter up by keyword first, then by position.
func (e *Execution) Arg(pos int, key string) (interface{}, bool) {
	if v, ok := e.Kwargs[key]; ok && v != nil {
		return v, true
	}
	if pos >= 0 && pos < len(e.Args) && e.Args[pos] != nil {
		return e.Args[pos], true
	}
	return nil, false
}

func (e *Execution) IntArg(pos int, key string, def int) int {
	v, ok := e.Arg(pos, key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

func (e *Execution) StringArg(pos int, key, def string) string {
	v, ok := e.Arg(pos, key)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (e *Execution) ListArg(pos int, key string) []interface{} {
	v, _ := e.Arg(pos, key)
	list, _ := v.([]interface{})
	return list
}

func (e *Execution) MapArg(pos int, key string) map[string]interface{} {
	v, _ := e.Arg(pos, key)
	m, _ := v.(map[string]interface{})
	if m == nil {
		m = map[string]interface{}{}
	}
	return m
}
