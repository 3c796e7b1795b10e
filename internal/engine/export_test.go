package engine

// Drivers reports how many instance drivers are currently live
func (e *Engine) Drivers() int {
	res := 0
	e.instances.Range(func(_, _ any) bool {
		res++
		return true
	})
	return res
}
