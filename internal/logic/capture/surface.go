package capture

// Phase is the capture state. Exactly one phase is active at a time.
type Phase int

const (
	// LiveFeed shows the preview and the capture control.
	LiveFeed Phase = iota
	// CountingDown shows the countdown; the trigger control is hidden.
	CountingDown
	// Flashing is ReviewingImage with the flash overlay raised.
	Flashing
	// ReviewingImage shows the captured still and the discard control.
	ReviewingImage
)

func (p Phase) String() string {
	switch p {
	case LiveFeed:
		return "live"
	case CountingDown:
		return "countdown"
	case Flashing:
		return "flashing"
	case ReviewingImage:
		return "reviewing"
	default:
		return "unknown"
	}
}

// SessionState is the camera session lifecycle.
type SessionState int

const (
	Stopped SessionState = iota
	Starting
	Active
	Stopping
)

func (s SessionState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Trigger is the affordance shown on the trigger control.
type Trigger string

const (
	TriggerCapture Trigger = "capture"
	TriggerDiscard Trigger = "discard"
	TriggerHidden  Trigger = "hidden"
)

// Surface is what the widget renders. It is derived from the phase and
// never holds contradicting flags: the trigger and the countdown are never
// both visible, and the live feed and the captured image never both show.
type Surface struct {
	Phase            string  `json:"phase"`
	Session          string  `json:"session"`
	ErrorMessage     string  `json:"error_message,omitempty"`
	FlashVisible     bool    `json:"flash_visible"`
	ImageVisible     bool    `json:"image_visible"`
	ImageID          string  `json:"image_id,omitempty"`
	VideoVisible     bool    `json:"video_visible"`
	Mirror           bool    `json:"mirror"`
	Fullscreen       bool    `json:"fullscreen"`
	Trigger          Trigger `json:"trigger"`
	CountdownVisible bool    `json:"countdown_visible"`
	Countdown        int     `json:"countdown"`
}

func (w *Widget) render() Surface {
	s := Surface{
		Phase:      w.phase.String(),
		Session:    w.session.String(),
		Mirror:     w.settings.Mirror,
		Fullscreen: w.settings.Fullscreen,
	}
	if w.settings.DisplayStartError && w.errMsg != "" {
		s.ErrorMessage = w.errMsg
	}

	switch w.phase {
	case LiveFeed:
		s.VideoVisible = true
		s.Trigger = TriggerCapture
	case CountingDown:
		s.VideoVisible = true
		s.Trigger = TriggerHidden
		s.CountdownVisible = true
		s.Countdown = w.tick
	case Flashing, ReviewingImage:
		s.FlashVisible = w.phase == Flashing
		s.ImageVisible = true
		if w.photo != nil {
			s.ImageID = w.photo.ID
		}
		s.Trigger = TriggerDiscard
	}
	return s
}
