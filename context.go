package session

// Field keys used in FieldErrors.
const (
	FieldEmail            = "email"
	FieldPassword         = "password"
	FieldConfirmationCode = "confirmationCode"
	FieldForm             = "form"
)

// FieldErrors maps a field name to a user facing message.
type FieldErrors map[string]string

// Has reports whether field carries an error.
func (f FieldErrors) Has(field string) bool {
	_, ok := f[field]
	return ok
}

func (f FieldErrors) clone() FieldErrors {
	if f == nil {
		return nil
	}
	out := make(FieldErrors, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Context is the data owned by the machine. Only transitions modify it.
type Context struct {
	Email            string
	Password         string
	ConfirmationCode string
	ValidationErrors FieldErrors
	CurrentUser      *AuthUser
	Tokens           *Tokens
	IsRefreshing     bool

	// LastErrorKind and LastErrorCode describe the most recent failed
	// operation. LastErrorCode is the provider's own code when it sent one,
	// otherwise the error's text code.
	LastErrorKind ErrorKind
	LastErrorCode string

	seq       uint64
	pending   uint64
	refreshOp uint64
}

// Clone returns a deep copy.
func (c Context) Clone() Context {
	out := c
	out.ValidationErrors = c.ValidationErrors.clone()
	if c.CurrentUser != nil {
		u := c.CurrentUser.Clone()
		out.CurrentUser = &u
	}
	if c.Tokens != nil {
		t := *c.Tokens
		out.Tokens = &t
	}
	return out
}

// PendingOp is the sequence of the operation the current state waits on, or 0.
func (c Context) PendingOp() uint64 {
	return c.pending
}

// RefreshOp is the sequence of the in-flight refresh, or 0.
func (c Context) RefreshOp() uint64 {
	return c.refreshOp
}

func (c *Context) nextOp() uint64 {
	c.seq++
	return c.seq
}

func (c *Context) clearForm() {
	c.Email = ""
	c.Password = ""
	c.ConfirmationCode = ""
	c.ValidationErrors = nil
	c.clearError()
}

func (c *Context) clearError() {
	c.LastErrorKind = ""
	c.LastErrorCode = ""
}

func (c *Context) clearSession() {
	c.CurrentUser = nil
	c.Tokens = nil
	c.IsRefreshing = false
	c.refreshOp = 0
}
