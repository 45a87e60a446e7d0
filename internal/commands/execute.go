package commands

import "fmt"

type Result struct {
	Message string
}

type Handlers struct {
	Add            func(AddArgs) (Result, error)
	Update         func(UpdateArgs) (Result, error)
	Toggle         func(ToggleArgs) (Result, error)
	Remove         func(RemoveArgs) (Result, error)
	List           func() (Result, error)
	Reconcile      func() (Result, error)
	DisableAll     func() (Result, error)
	ClearScheduler func() (Result, error)
	Permission     func(PermissionArgs) (Result, error)
}

func Execute(cmd Command, handlers Handlers) (Result, error) {
	switch cmd.Type {
	case TypeAdd:
		if handlers.Add == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Add(*cmd.Add)
	case TypeUpdate:
		if handlers.Update == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Update(*cmd.Update)
	case TypeToggle:
		if handlers.Toggle == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Toggle(*cmd.Toggle)
	case TypeRemove:
		if handlers.Remove == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Remove(*cmd.Remove)
	case TypePermission:
		if handlers.Permission == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Permission(*cmd.Permission)
	case TypeList:
		return runNoArgs(cmd.Type, handlers.List)
	case TypeReconcile:
		return runNoArgs(cmd.Type, handlers.Reconcile)
	case TypeDisableAll:
		return runNoArgs(cmd.Type, handlers.DisableAll)
	case TypeClearScheduler:
		return runNoArgs(cmd.Type, handlers.ClearScheduler)
	default:
		return Result{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command type: %s", cmd.Type)}
	}
}

func runNoArgs(t Type, fn func() (Result, error)) (Result, error) {
	if fn == nil {
		return Result{}, missing(t)
	}
	return fn()
}

func missing(t Type) error {
	return &CommandError{Code: ErrCodeHandlerMissing, Message: fmt.Sprintf("%s handler not configured", t)}
}
