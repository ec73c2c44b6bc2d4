package updaterouter

// Route labels, used in logs and as the "handler" metric label.
const (
	routeStart        = "start"
	routeBegin        = "begin"
	routeFormAnswer   = "form_answer"
	routeReviewText   = "review_text"
	routeOffer        = "offer"
	routeAccept       = "accept"
	routeFinish       = "finish"
	routeReviewScore  = "review_score"
	routeMalformed    = "malformed_payload"
	routeThrottled    = "throttled"
	routeIgnored      = "ignored"
	statusOK          = "ok"
	startCommand      = "start"
	ingestOK          = "ok"
	ingestErrorPrefix = "Error: "
)

// MsgSlowDown is sent when a sender's message is dropped by the throttle.
// The current step is unchanged, so the answer can simply be sent again.
const MsgSlowDown = "Слишком много сообщений подряд. Подождите немного и отправьте ответ ещё раз."
