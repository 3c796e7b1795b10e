package log

import "log/slog"

func WorkflowID[T ~string](id T) slog.Attr {
	return slog.String("workflow_id", string(id))
}

func InstanceID[T ~string](id T) slog.Attr {
	return slog.String("instance_id", string(id))
}

func TaskID[T ~string](id T) slog.Attr {
	return slog.String("task_id", string(id))
}

func ApprovalID[T ~string](id T) slog.Attr {
	return slog.String("approval_id", string(id))
}

func Status[T ~string](status T) slog.Attr {
	return slog.String("status", string(status))
}

func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
