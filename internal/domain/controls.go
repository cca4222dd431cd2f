package domain

// Action identifies what a native control does when the host reports a click.
type Action string

const (
	ActionNone         Action = ""
	ActionOpenCart     Action = "open_cart"
	ActionCheckout     Action = "checkout"
	ActionAddToBag     Action = "add_to_bag"
	ActionGoHome       Action = "go_home"
	ActionLeaveProduct Action = "leave_product"
	ActionCloseFlow    Action = "close_flow"
)

// PrimaryControl describes the host's main button. Progress shows the host's busy spinner.
type PrimaryControl struct {
	Visible  bool
	Label    string
	Action   Action
	Progress bool
}

// BackControl describes the host's back button.
type BackControl struct {
	Visible bool
	Action  Action
}

// ControlDescriptor is the desired state of both native controls. It is derived, never stored
// as authoritative state.
type ControlDescriptor struct {
	Primary PrimaryControl
	Back    BackControl
}

// ButtonKind names one of the two host controls.
type ButtonKind string

const (
	ButtonPrimary ButtonKind = "main"
	ButtonBack    ButtonKind = "back"
)

// HapticKind is the coarse-grained event family accepted by the host feedback sink.
type HapticKind string

const (
	HapticImpact       HapticKind = "impact"
	HapticNotification HapticKind = "notification"
	HapticSelection    HapticKind = "selection"
)

// HapticEvent is a best-effort tactile feedback request.
type HapticEvent struct {
	Kind  HapticKind
	Style string
}

var (
	HapticImpactMedium = HapticEvent{Kind: HapticImpact, Style: "medium"}
	HapticSuccess      = HapticEvent{Kind: HapticNotification, Style: "success"}
	HapticError        = HapticEvent{Kind: HapticNotification, Style: "error"}
	HapticSelected     = HapticEvent{Kind: HapticSelection}
)
