package health

import "context"

// PingCheck adapts a ping function to a Check. A failing ping reports
// StatusDown when required is set and StatusDegraded otherwise, so optional
// dependencies such as the shared cache do not take the service out of
// rotation.
func PingCheck(ping func(ctx context.Context) error, required bool) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			status := StatusDegraded
			if required {
				status = StatusDown
			}
			return ComponentHealth{Status: status, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}
