package session

// Guard pauses listening while the window is in the background and resumes
// it on return when it was active.
type Guard struct {
	resume  bool
	blurred bool
}

// Blurred reports whether the window is in the background.
func (g Guard) Blurred() bool {
	return g.blurred
}

// Blur records listening and stops it.
func (g Guard) Blur(listening bool) (Guard, []Effect) {
	g.blurred = true
	if !listening {
		return g, nil
	}
	g.resume = true
	return g, []Effect{StopListening}
}

// Focus resumes listening when it was stopped by Blur.
func (g Guard) Focus() (Guard, []Effect) {
	g.blurred = false
	if !g.resume {
		return g, nil
	}
	g.resume = false
	return g, []Effect{StartListening}
}
