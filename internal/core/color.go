package core

// Color is the role of a screen cell. The platform decides which terminal
// color each role is drawn in.
type Color uint8

// Roles in the run view.
const (
	ColorDefault Color = iota
	ColorPlayer
	ColorGroundObstacle
	ColorOverheadObstacle
	ColorReward
	ColorLedger
	ColorCheckpoint
	ColorLoss
	ColorMuted
	ColorNotice
)
