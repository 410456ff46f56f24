package constants

import (
	"github.com/go-playground/validator/v10"
)

type ContextKey string

const (
	TxKey       ContextKey = "tx"
	PoolKey     ContextKey = "pool"
	TenantIDKey ContextKey = "tenantID"
	LoggerKey   ContextKey = "logger"
	IdentityKey ContextKey = "identity"
	ParamsKey   ContextKey = "params"
)

var Validate = validator.New(validator.WithRequiredStructEnabled())
