package commands

import "fmt"

type Result struct {
	Message string
}

type Handlers struct {
	Add       func(AddArgs) (Result, error)
	Take      func(TargetArgs) (Result, error)
	Untake    func(TargetArgs) (Result, error)
	Defer     func(DeferArgs) (Result, error)
	Delete    func(TargetArgs) (Result, error)
	Reconcile func() (Result, error)
	Show      func(ShowArgs) (Result, error)
	Test      func() (Result, error)
}

func missing(name string) error {
	return &CommandError{Code: ErrCodeHandlerMissing, Message: name + " handler not configured"}
}

func Execute(cmd Command, handlers Handlers) (Result, error) {
	switch cmd.Type {
	case TypeAdd:
		if handlers.Add == nil {
			return Result{}, missing("add")
		}
		return handlers.Add(*cmd.Add)
	case TypeTake:
		if handlers.Take == nil {
			return Result{}, missing("take")
		}
		return handlers.Take(*cmd.Target)
	case TypeUntake:
		if handlers.Untake == nil {
			return Result{}, missing("untake")
		}
		return handlers.Untake(*cmd.Target)
	case TypeDefer:
		if handlers.Defer == nil {
			return Result{}, missing("defer")
		}
		return handlers.Defer(*cmd.Defer)
	case TypeDelete:
		if handlers.Delete == nil {
			return Result{}, missing("delete")
		}
		return handlers.Delete(*cmd.Target)
	case TypeReconcile:
		if handlers.Reconcile == nil {
			return Result{}, missing("reconcile")
		}
		return handlers.Reconcile()
	case TypeShow:
		if handlers.Show == nil {
			return Result{}, missing("show")
		}
		return handlers.Show(*cmd.Show)
	case TypeTest:
		if handlers.Test == nil {
			return Result{}, missing("test")
		}
		return handlers.Test()
	default:
		return Result{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command type: %s", cmd.Type)}
	}
}
