package log

import "sort"

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldClientIP     = "client_ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldQuery        = "query"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldUserAgent    = "user_agent"
	FieldReferer      = "referer"
	FieldSuccess      = "success"
	FieldError        = "error"
	FieldOperation    = "operation"
	FieldUserID       = "user_id"
	FieldMonth        = "month"
	FieldExpenseID    = "expense_id"
	FieldExpenseTitle = "expense_title"
	FieldExpenseKind  = "expense_kind"
	FieldInstanceType = "instance_type"
	FieldInstallment  = "installment_number"
	FieldInstanceDate = "instance_date"
	FieldAmount       = "amount"
	FieldDiscount     = "discount"
	FieldPaymentType  = "payment_type"
	FieldCount        = "count"
	FieldEvent        = "event"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentExpense   = "expense"
	ComponentStorage   = "storage"
	ComponentWorker    = "worker"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentTrace     = "trace"
	ComponentBackend   = "backend"
	ComponentProjector = "projector"
	ComponentFinancing = "financing"
	ComponentLedger    = "ledger"
	ComponentMutator   = "mutator"
	ComponentCLI       = "cli"
)

// Operations defines standard operation names
const (
	OpCreate  = "create"
	OpRead    = "read"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpList    = "list"
	OpAppend  = "append"
	OpSync    = "sync"
	OpProject = "project"
	OpToggle  = "toggle"
	OpPay     = "pay"
	OpReset   = "reset"
	OpRecount = "recount"
	OpPublish = "publish"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithClientIP adds client IP field
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithUser adds the owning user field
func (f LogFields) WithUser(userID string) LogFields {
	f[FieldUserID] = userID
	return f
}

// WithExpense adds expense-related fields
func (f LogFields) WithExpense(id, title string, kind string) LogFields {
	f[FieldExpenseID] = id
	if title != "" {
		f[FieldExpenseTitle] = title
	}
	if kind != "" {
		f[FieldExpenseKind] = kind
	}
	return f
}

// WithInstance adds the natural key fields of an instance
func (f LogFields) WithInstance(expenseID, instanceType, instanceDate string, installment int) LogFields {
	f[FieldExpenseID] = expenseID
	f[FieldInstanceType] = instanceType
	f[FieldInstanceDate] = instanceDate
	f[FieldInstallment] = installment
	return f
}

// WithPayment adds payment amount fields. Amounts are logged as decimal strings.
func (f LogFields) WithPayment(amount, discount string, paymentType string) LogFields {
	f[FieldAmount] = amount
	f[FieldDiscount] = discount
	f[FieldPaymentType] = paymentType
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	f[FieldReferer] = referer
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to slog key/value pairs, ordered by key so
// the same fields always print in the same order.
func (f LogFields) ToSlice() []any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	slice := make([]any, 0, len(f)*2)
	for _, k := range keys {
		slice = append(slice, k, f[k])
	}
	return slice
}