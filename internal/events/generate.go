package events

//go:generate mockgen -destination=mock_events/publisher.go -package=mock_events . Publisher
