package domain

// User is the contact view of an account, used to address notifications.
type User struct {
	ID          string `json:"id" yaml:"id"`
	Email       string `json:"email" yaml:"email"`
	PhoneNumber string `json:"phone_number" yaml:"phone_number"`
	Name        string `json:"name" yaml:"name"`
}
