package eventbus

// Event types published by remindbot components.
const (
	ReminderCreated   = "reminder.created"
	ReminderCompleted = "reminder.completed"
	ReminderSnoozed   = "reminder.snoozed"
	ReminderDeleted   = "reminder.deleted"
	ReminderDelivered = "reminder.delivered"

	CycleFinished = "delivery.cycle"
	CycleAborted  = "delivery.aborted"

	NotifierSent   = "notifier.sent"
	NotifierFailed = "notifier.failed"

	// Scheduler run outcomes; Data is a scheduler.TaskEvent.
	TaskDone    = "task.done"
	TaskSkipped = "task.skipped"
	TaskFailed  = "task.failed"

	ConfigReloaded = "config.reloaded"
)
