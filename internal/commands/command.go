package commands

import (
	"fmt"
	"strings"

	"github.com/sandeepkv93/medremind/internal/model"
)

type Type string

const (
	TypeAdd            Type = "add"
	TypeUpdate         Type = "update"
	TypeToggle         Type = "toggle"
	TypeRemove         Type = "remove"
	TypeList           Type = "list"
	TypeReconcile      Type = "reconcile"
	TypeDisableAll     Type = "disable-all"
	TypeClearScheduler Type = "clear-scheduler"
	TypePermission     Type = "permission"
)

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AddArgs is parsed from "add <name> at HH:MM [on mon,thu] [dose <text>]".
type AddArgs struct {
	Name     string
	Time     string
	Weekdays []model.Weekday
	Dose     string
}

// UpdateArgs is parsed from "update <target> <field> <value>".
type UpdateArgs struct {
	Target string
	Field  string
	Value  string
}

type ToggleArgs struct {
	Target  string
	Enabled bool
}

type RemoveArgs struct {
	Target string
}

// PermissionArgs is parsed from "permission [grant|deny]". An empty Grant
// asks for the current state.
type PermissionArgs struct {
	Grant *bool
}

type Command struct {
	Type       Type
	Raw        string
	Add        *AddArgs
	Update     *UpdateArgs
	Toggle     *ToggleArgs
	Remove     *RemoveArgs
	Permission *PermissionArgs
}

var updateFields = map[string]bool{"name": true, "dose": true, "time": true, "days": true, "notes": true}

func Parse(input string) (Command, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}
	if strings.HasPrefix(raw, "/") {
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	}
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := strings.ToLower(parts[0])
	args := parts[1:]

	switch Type(head) {
	case TypeAdd:
		return parseAdd(input, args)
	case TypeUpdate:
		return parseUpdate(input, args)
	case TypeToggle:
		return parseToggle(input, args)
	case TypeRemove, "rm":
		return parseRemove(input, args)
	case TypePermission:
		return parsePermission(input, args)
	case TypeList, TypeReconcile, TypeDisableAll, TypeClearScheduler:
		if len(args) > 0 {
			return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("%s takes no arguments", head)}
		}
		return Command{Type: Type(head), Raw: input}, nil
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

func parseAdd(raw string, args []string) (Command, error) {
	out := AddArgs{}
	var name, dose []string
	section := "name"
	for i := 0; i < len(args); i++ {
		word := args[i]
		switch strings.ToLower(word) {
		case "at":
			if section == "dose" || i+1 >= len(args) {
				break
			}
			i++
			out.Time = args[i]
			section = ""
			continue
		case "on":
			if section == "dose" || i+1 >= len(args) {
				break
			}
			i++
			days, err := ParseWeekdays(args[i])
			if err != nil {
				return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: err.Error()}
			}
			out.Weekdays = days
			section = ""
			continue
		case "dose":
			if section != "dose" {
				section = "dose"
				continue
			}
		}
		switch section {
		case "name":
			name = append(name, word)
		case "dose":
			dose = append(dose, word)
		default:
			return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("unexpected %q", word)}
		}
	}
	out.Name = strings.Join(name, " ")
	out.Dose = strings.Join(dose, " ")
	if out.Name == "" {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "add requires a name"}
	}
	if out.Time == "" {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "add requires a time: add <name> at HH:MM"}
	}
	return Command{Type: TypeAdd, Raw: raw, Add: &out}, nil
}

func parseUpdate(raw string, args []string) (Command, error) {
	if len(args) < 2 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "update requires target and field"}
	}
	field := strings.ToLower(args[1])
	if !updateFields[field] {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("unknown field %q (name, dose, time, days, notes)", args[1])}
	}
	value := strings.Join(args[2:], " ")
	if value == "" && (field == "name" || field == "time") {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("update %s requires a value", field)}
	}
	return Command{Type: TypeUpdate, Raw: raw, Update: &UpdateArgs{Target: args[0], Field: field, Value: value}}, nil
}

func parseToggle(raw string, args []string) (Command, error) {
	if len(args) != 2 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "toggle requires target and on|off"}
	}
	var enabled bool
	switch strings.ToLower(args[1]) {
	case "on", "true", "enable":
		enabled = true
	case "off", "false", "disable":
		enabled = false
	default:
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("toggle state must be on or off, got %q", args[1])}
	}
	return Command{Type: TypeToggle, Raw: raw, Toggle: &ToggleArgs{Target: args[0], Enabled: enabled}}, nil
}

func parseRemove(raw string, args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "remove requires a target"}
	}
	return Command{Type: TypeRemove, Raw: raw, Remove: &RemoveArgs{Target: args[0]}}, nil
}

func parsePermission(raw string, args []string) (Command, error) {
	out := PermissionArgs{}
	switch {
	case len(args) == 0:
	case len(args) == 1 && (strings.EqualFold(args[0], "grant") || strings.EqualFold(args[0], "granted")):
		grant := true
		out.Grant = &grant
	case len(args) == 1 && (strings.EqualFold(args[0], "deny") || strings.EqualFold(args[0], "denied")):
		grant := false
		out.Grant = &grant
	default:
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "permission takes grant, deny or nothing"}
	}
	return Command{Type: TypePermission, Raw: raw, Permission: &out}, nil
}

// ParseWeekdays reads a comma separated day list. "daily", "every" and the
// empty string mean every day and yield an empty set.
func ParseWeekdays(raw string) ([]model.Weekday, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "daily" || raw == "every" {
		return []model.Weekday{}, nil
	}
	seen := map[model.Weekday]bool{}
	out := []model.Weekday{}
	for _, part := range strings.Split(raw, ",") {
		d, err := model.ParseWeekday(part)
		if err != nil {
			return nil, err
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return model.SortWeekdays(out), nil
}

// Patch turns an update command into a reminder patch.
func (a UpdateArgs) Patch() (model.Patch, error) {
	value := a.Value
	switch a.Field {
	case "name":
		return model.Patch{Name: &value}, nil
	case "dose":
		return model.Patch{Dose: &value}, nil
	case "time":
		return model.Patch{Time: &value}, nil
	case "notes":
		return model.Patch{Notes: &value}, nil
	case "days":
		days, err := ParseWeekdays(value)
		if err != nil {
			return model.Patch{}, &CommandError{Code: ErrCodeInvalidArgument, Message: err.Error()}
		}
		return model.Patch{Weekdays: &days}, nil
	default:
		return model.Patch{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("unknown field %q", a.Field)}
	}
}
