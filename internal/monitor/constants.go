package monitor

const (
	telemetryStreamName = "TELEMETRY"
	alertStreamName     = "ALERTS"

	alertFiredSubject = "alert.fired"
)

func telemetrySubject(stage string) string {
	return "telemetry." + stage + ".current"
}
