package scoring

// Level is the discrete connection bucket derived from the smoothed score.
type Level string

const (
	LevelDisconnected    Level = "disconnected"
	LevelWarmingUp       Level = "warming_up"
	LevelConnecting      Level = "connecting"
	LevelDeeplyConnected Level = "deeply_connected"
)

// Level thresholds. Lower bounds are inclusive.
const (
	WarmingUpThreshold       = 0.25
	ConnectingThreshold      = 0.50
	DeeplyConnectedThreshold = 0.75
)

// Levels lists every level from weakest to strongest.
var Levels = []Level{LevelDisconnected, LevelWarmingUp, LevelConnecting, LevelDeeplyConnected}

// Classify maps a score to its level. There is no hysteresis: a score
// hovering on a threshold can change level every tick.
func Classify(score float64) Level {
	switch {
	case score >= DeeplyConnectedThreshold:
		return LevelDeeplyConnected
	case score >= ConnectingThreshold:
		return LevelConnecting
	case score >= WarmingUpThreshold:
		return LevelWarmingUp
	default:
		return LevelDisconnected
	}
}

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	for _, v := range Levels {
		if l == v {
			return true
		}
	}
	return false
}
