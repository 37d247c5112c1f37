package gateway

import "fmt"

func TopicDeviceAnnounce(prefix string) string {
	return fmt.Sprintf("%s/device/+/announce", prefix)
}

func TopicDeviceOnline(prefix string) string {
	return fmt.Sprintf("%s/device/+/online", prefix)
}

func TopicDeviceStatus(prefix string) string {
	return fmt.Sprintf("%s/device/+/status", prefix)
}

func TopicDeviceResult(prefix string) string {
	return fmt.Sprintf("%s/device/+/result/+", prefix)
}

func TopicCommand(prefix, deviceID, commandID string) string {
	return fmt.Sprintf("%s/device/%s/command/%s", prefix, deviceID, commandID)
}

func TopicResult(prefix, deviceID, commandID string) string {
	return fmt.Sprintf("%s/device/%s/result/%s", prefix, deviceID, commandID)
}

func TopicAnnounce(prefix, deviceID string) string {
	return fmt.Sprintf("%s/device/%s/announce", prefix, deviceID)
}

func TopicOnline(prefix, deviceID string) string {
	return fmt.Sprintf("%s/device/%s/online", prefix, deviceID)
}

func TopicStatus(prefix, deviceID string) string {
	return fmt.Sprintf("%s/device/%s/status", prefix, deviceID)
}

func TopicUserResponse(prefix, userID string) string {
	return fmt.Sprintf("%s/user/%s/response", prefix, userID)
}
