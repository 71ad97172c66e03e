// Package notification delivers push notifications to the mobile app
// through Expo's push API. Everything here is fire-and-forget: delivery
// failures are logged and never propagate into request handling.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"TMIFACE/models"
)

const (
	defaultEndpoint = "https://exp.host/--/api/v2/push/send"
	chunkSize       = 100
)

type Service struct {
	DB       *gorm.DB
	Endpoint string
	Client   *http.Client
}

func New(db *gorm.DB) *Service {
	return &Service{
		DB:       db,
		Endpoint: defaultEndpoint,
		Client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// ValidateExpoToken checks the token shape before registering a device.
func ValidateExpoToken(token string) bool {
	return (strings.HasPrefix(token, "ExponentPushToken[") ||
		strings.HasPrefix(token, "ExpoPushToken[")) &&
		strings.HasSuffix(token, "]")
}

// Broadcast pushes one notification to every active device. Returns
// immediately; delivery happens in the background.
func (s *Service) Broadcast(title, body string, data map[string]string) {
	go s.deliver(title, body, data)
}

type pushMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound"`
}

type pushTicket struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

func (s *Service) deliver(title, body string, data map[string]string) {
	var devices []models.UserDevice
	if err := s.DB.Where("is_active = ?", true).Find(&devices).Error; err != nil {
		log.Printf("Warning: loading push devices: %v", err)
		return
	}
	if len(devices) == 0 {
		return
	}

	for start := 0; start < len(devices); start += chunkSize {
		end := start + chunkSize
		if end > len(devices) {
			end = len(devices)
		}
		s.sendChunk(devices[start:end], title, body, data)
	}
}

func (s *Service) sendChunk(devices []models.UserDevice, title, body string, data map[string]string) {
	messages := make([]pushMessage, 0, len(devices))
	for _, d := range devices {
		messages = append(messages, pushMessage{
			To:    d.ExpoPushToken,
			Title: title,
			Body:  body,
			Data:  data,
			Sound: "default",
		})
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		log.Printf("Warning: push payload: %v", err)
		return
	}

	resp, err := s.Client.Post(s.Endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Printf("Warning: push send failed: %v", err)
		return
	}
	defer resp.Body.Close()

	var out struct {
		Data []pushTicket `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Printf("Warning: push ticket decode: %v", err)
		return
	}

	// Tickets come back in message order; deactivate tokens Expo no longer
	// recognizes so we stop pushing to uninstalled apps.
	for i, ticket := range out.Data {
		if ticket.Status != "error" || i >= len(devices) {
			continue
		}
		if ticket.Details.Error == "DeviceNotRegistered" {
			if err := s.DB.Model(&models.UserDevice{}).
				Where("expo_push_token = ?", devices[i].ExpoPushToken).
				Update("is_active", false).Error; err != nil {
				log.Printf("Warning: deactivating device: %v", err)
			}
		} else {
			log.Printf("Warning: push ticket error: %s (%s)", ticket.Message, ticket.Details.Error)
		}
	}
}

// RegisterDevice stores or reactivates a push target for a member.
func (s *Service) RegisterDevice(memberId int64, token, deviceType, deviceName, newId string) (string, error) {
	if !ValidateExpoToken(token) {
		return "", fmt.Errorf("invalid Expo push token format")
	}

	var existing models.UserDevice
	err := s.DB.Where("expo_push_token = ?", token).First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"member_id":   memberId,
			"device_type": deviceType,
			"device_name": deviceName,
			"is_active":   true,
		}
		if err := s.DB.Model(&existing).Updates(updates).Error; err != nil {
			return "", err
		}
		return existing.Id, nil
	case err == gorm.ErrRecordNotFound:
		device := models.UserDevice{
			Id:            newId,
			MemberId:      memberId,
			ExpoPushToken: token,
			DeviceType:    deviceType,
			DeviceName:    deviceName,
			IsActive:      true,
		}
		if err := s.DB.Create(&device).Error; err != nil {
			return "", err
		}
		return device.Id, nil
	default:
		return "", err
	}
}

// UnregisterDevice flips the device inactive (logout keeps the row).
func (s *Service) UnregisterDevice(memberId int64, token string) error {
	return s.DB.Model(&models.UserDevice{}).
		Where("expo_push_token = ? AND member_id = ?", token, memberId).
		Update("is_active", false).Error
}
