package user

// Details is the profile view of a driver. Score is nil until the first trip.
type Details struct {
	UserID    int64  `json:"userID"`
	Username  string `json:"username"`
	Score     *int   `json:"score"`
	TripCount *int   `json:"tripCount"`
}
