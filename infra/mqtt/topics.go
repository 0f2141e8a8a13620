package mqtt

import "strings"

// DispatchTopic is where the order for vehicleID is published.
func DispatchTopic(prefix, vehicleID string) string {
	return prefix + "/vehicles/" + vehicleID + "/dispatch"
}

// AckTopic matches the acknowledgments of every vehicle.
func AckTopic(prefix string) string { return prefix + "/vehicles/+/ack" }

// PositionTopic matches the position reports of every vehicle.
func PositionTopic(prefix string) string { return prefix + "/vehicles/+/position" }

// VehicleAckTopic is where vehicleID publishes its acknowledgments.
func VehicleAckTopic(prefix, vehicleID string) string {
	return prefix + "/vehicles/" + vehicleID + "/ack"
}

// VehiclePositionTopic is where vehicleID publishes its positions.
func VehiclePositionTopic(prefix, vehicleID string) string {
	return prefix + "/vehicles/" + vehicleID + "/position"
}

// vehicleFromTopic extracts the vehicle id of prefix/vehicles/{id}/kind.
func vehicleFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "vehicles" {
			return parts[i+1]
		}
	}
	return ""
}
