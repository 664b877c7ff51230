package ledger

// SetBeforeWrite installs a hook that runs between the read and write phases.
func SetBeforeWrite(e *Engine, fn func(op string, attempt int)) {
	e.beforeWrite = fn
}
