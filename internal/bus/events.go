package bus

// Server-pushed event names carried over the realtime channel. The channel
// republishes these verbatim; subscribers interpret the payloads.
const (
	EventTaskCreated   = "task.created"
	EventTaskUpdated   = "task.updated"
	EventTaskCompleted = "task.completed"
	EventTaskDeleted   = "task.deleted"

	EventFocusStarted   = "focus.started"
	EventFocusCompleted = "focus.completed"
	EventFocusPaused    = "focus.paused"

	EventAnalyticsUpdated  = "analytics.updated"
	EventForecastAvailable = "forecast.available"

	EventChatMessage = "chat.message"
	EventChatTyping  = "chat.typing"

	EventNotification = "notification.received"
	EventAchievement  = "notification.achievement"

	EventCollabShared  = "collab.shared"
	EventCollabComment = "collab.comment"
	EventCollabEditing = "collab.editing"
)

// Core lifecycle events published locally, never sent to the server.
const (
	EventSyncStarted  = "sync.started"
	EventSyncComplete = "sync.complete"
	// EventSyncOperationFailed fires once per operation dropped after
	// exhausting its transmission attempts. Payload: the dropped
	// queue.Operation.
	EventSyncOperationFailed = "sync.operation_failed"

	EventConnected    = "realtime.connected"
	EventDisconnected = "realtime.disconnected"
	// EventReconnectExhausted fires when automatic reconnection gives up.
	// A subsequent explicit Connect call is required to resume.
	EventReconnectExhausted = "realtime.reconnect_exhausted"

	EventCredentialUpdated = "credential.updated"
)

// ServerEvents lists every server-pushed event category the realtime
// channel subscribes to and republishes.
var ServerEvents = []string{
	EventTaskCreated, EventTaskUpdated, EventTaskCompleted, EventTaskDeleted,
	EventFocusStarted, EventFocusCompleted, EventFocusPaused,
	EventAnalyticsUpdated, EventForecastAvailable,
	EventChatMessage, EventChatTyping,
	EventNotification, EventAchievement,
	EventCollabShared, EventCollabComment, EventCollabEditing,
}
