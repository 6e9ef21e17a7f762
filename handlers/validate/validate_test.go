package validate

import "testing"

type signup struct {
	Username string `json:"username" validate:"omitempty,min=3,max=30"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name string
		in   signup
		want string
	}{
		{"valid", signup{Email: "a@b.co", Password: "secret"}, ""},
		{"missing email", signup{Password: "secret"}, `"email" is required`},
		{"bad email", signup{Email: "nope", Password: "secret"}, `"email" must be a valid email`},
		{"short password", signup{Email: "a@b.co", Password: "123"}, `"password" length must be at least 6 characters long`},
		{"short username", signup{Username: "ab", Email: "a@b.co", Password: "secret"}, `"username" length must be at least 3 characters long`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Struct(tt.in); got != tt.want {
				t.Errorf("Struct() = %q, want %q", got, tt.want)
			}
		})
	}
}
