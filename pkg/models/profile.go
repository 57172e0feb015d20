package models

import "time"

// Profile is the applicant's stored data, supplied by the persistence layer.
// The pipeline treats it as read-only.
type Profile struct {
	Personal   PersonalInfo   `json:"personal"`
	Passport   PassportInfo   `json:"passport"`
	Employment EmploymentInfo `json:"employment"`
	Education  EducationInfo  `json:"education"`
	Family     FamilyInfo     `json:"family"`
	Travel     TravelInfo     `json:"travel"`
}

type PersonalInfo struct {
	GivenName      string     `json:"givenName,omitempty"`
	MiddleName     string     `json:"middleName,omitempty"`
	Surname        string     `json:"surname,omitempty"`
	DateOfBirth    *time.Time `json:"dateOfBirth,omitempty"`
	PlaceOfBirth   string     `json:"placeOfBirth,omitempty"`
	CountryOfBirth string     `json:"countryOfBirth,omitempty"`
	Gender         string     `json:"gender,omitempty"`
	Nationality    string     `json:"nationality,omitempty"`
	MaritalStatus  string     `json:"maritalStatus,omitempty"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	Address        Address    `json:"address"`
}

type Address struct {
	Line1      string `json:"line1,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

type PassportInfo struct {
	Number         string     `json:"number,omitempty"`
	IssuingCountry string     `json:"issuingCountry,omitempty"`
	PlaceOfIssue   string     `json:"placeOfIssue,omitempty"`
	IssueDate      *time.Time `json:"issueDate,omitempty"`
	ExpiryDate     *time.Time `json:"expiryDate,omitempty"`
}

type EmploymentInfo struct {
	Current CurrentEmployment `json:"current"`
}

type CurrentEmployment struct {
	EmployerName    string `json:"employerName,omitempty"`
	JobTitle        string `json:"jobTitle,omitempty"`
	EmployerAddress string `json:"employerAddress,omitempty"`
	EmployerPhone   string `json:"employerPhone,omitempty"`
	MonthlyIncome   string `json:"monthlyIncome,omitempty"`
}

type EducationInfo struct {
	HighestQualification string `json:"highestQualification,omitempty"`
	InstitutionName      string `json:"institutionName,omitempty"`
}

type FamilyInfo struct {
	FatherName string         `json:"fatherName,omitempty"`
	MotherName string         `json:"motherName,omitempty"`
	SpouseName string         `json:"spouseName,omitempty"`
	Members    []FamilyMember `json:"members,omitempty"`
}

type TravelInfo struct {
	PurposeOfVisit       string         `json:"purposeOfVisit,omitempty"`
	IntendedArrival      *time.Time     `json:"intendedArrival,omitempty"`
	IntendedDeparture    *time.Time     `json:"intendedDeparture,omitempty"`
	AccommodationAddress string         `json:"accommodationAddress,omitempty"`
	History              []TravelRecord `json:"history,omitempty"`
}

// FamilyMember is a record reconstructed from a family table or stored in the profile.
type FamilyMember struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	DOB          string `json:"dob,omitempty"`
	Nationality  string `json:"nationality,omitempty"`
	Occupation   string `json:"occupation,omitempty"`
}

// TravelRecord is a prior trip reconstructed from a travel-history table.
type TravelRecord struct {
	Country  string `json:"country"`
	FromDate string `json:"fromDate,omitempty"`
	ToDate   string `json:"toDate,omitempty"`
	Purpose  string `json:"purpose,omitempty"`
}
