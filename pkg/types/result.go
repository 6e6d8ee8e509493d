package types

// ResultMap is the outcome of a single tool execution. Every result carries
// "success"; "error", "permissionRequired", "command" and tool-specific fields
// are optional. Field names are part of the wire contract and are passed
// through to emitted events unchanged.
type ResultMap map[string]any

// Success reports whether the execution succeeded.
func (r ResultMap) Success() bool {
	ok, _ := r["success"].(bool)
	return ok
}

// Error returns the error text, if any.
func (r ResultMap) Error() string {
	s, _ := r["error"].(string)
	return s
}

// PermissionRequired reports whether the tool refused to run pending
// explicit user sign-off.
func (r ResultMap) PermissionRequired() bool {
	ok, _ := r["permissionRequired"].(bool)
	return ok
}

// Command returns the command associated with a permission request, if any.
func (r ResultMap) Command() string {
	s, _ := r["command"].(string)
	return s
}

// OkResult builds a successful result with optional extra fields.
func OkResult(extra map[string]any) ResultMap {
	r := ResultMap{"success": true}
	for k, v := range extra {
		r[k] = v
	}
	return r
}

// ErrResult builds a failed result.
func ErrResult(err string) ResultMap {
	return ResultMap{"success": false, "error": err}
}
