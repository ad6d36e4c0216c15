package emojinary_client

const (
	// Paths
	healthPath   = "/api/health"
	sessionsPath = "/api/sessions/"

	snapshotSuffix = "/snapshot"
	joinSuffix     = "/join"
	startSuffix    = "/start"
	leaveSuffix    = "/leave"
	refreshSuffix  = "/refresh"
	responsesPath  = "/responses"

	// Headers
	jsonHeader      = "accept"
	jsonContentType = "application/json"
)
