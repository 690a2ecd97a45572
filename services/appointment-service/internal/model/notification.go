package model

type NotificationType string

const (
	NotificationNewAppointment       NotificationType = "new_appointment"
	NotificationAppointmentConfirmed NotificationType = "appointment_confirmed"
	NotificationAppointmentRejected  NotificationType = "appointment_rejected"
	NotificationRescheduleProposed   NotificationType = "reschedule_proposed"
	NotificationRescheduleAccepted   NotificationType = "reschedule_accepted"
	NotificationRescheduleRejected   NotificationType = "reschedule_rejected"
	NotificationAppointmentCompleted NotificationType = "appointment_completed"
	NotificationPaymentReceived      NotificationType = "payment_received"
	NotificationReview               NotificationType = "review"
)

var NotificationTypes = []NotificationType{
	NotificationNewAppointment,
	NotificationAppointmentConfirmed,
	NotificationAppointmentRejected,
	NotificationRescheduleProposed,
	NotificationRescheduleAccepted,
	NotificationRescheduleRejected,
	NotificationAppointmentCompleted,
	NotificationPaymentReceived,
	NotificationReview,
}
