package ws

// Palette maps a polygon status to the color and title shown by the client.
type Palette interface {
	Color(status int) string
	Title(status int) string
}

// DefaultPalette is the stock status lookup.
type DefaultPalette struct{}

// Color returns a CSS color name for status.
func (DefaultPalette) Color(status int) string {
	switch status {
	case 1, 7, 9, 10:
		return "red"
	case 2:
		return "blue"
	case 3:
		return "green"
	case 4:
		return "yellow"
	case 5, 8:
		return "purple"
	case 6:
		return "brown"
	default:
		return "black"
	}
}

// Title returns the popover label for status.
func (DefaultPalette) Title(status int) string {
	switch status {
	case 1:
		return "Low Population"
	case 2:
		return "Best"
	case 3, 5, 6:
		return "Good"
	case 4:
		return "OK - Termite"
	case 7, 9, 10:
		return "Do not knock"
	default:
		return "OK"
	}
}
