package gen

import (
	"sort"

	"github.com/brianvoe/gofakeit/v6"
)

// fakers maps the faker.js style names accepted by the faker keyword to
// gofakeit producers.
var fakers = map[string]func(*gofakeit.Faker) string{
	"address.zipCode":       (*gofakeit.Faker).Zip,
	"address.city":          (*gofakeit.Faker).City,
	"address.streetAddress": (*gofakeit.Faker).Street,
	"address.streetName":    (*gofakeit.Faker).StreetName,
	"address.country":       (*gofakeit.Faker).Country,
	"address.state":         (*gofakeit.Faker).State,
	"name.findName":         (*gofakeit.Faker).Name,
	"name.firstName":        (*gofakeit.Faker).FirstName,
	"name.lastName":         (*gofakeit.Faker).LastName,
	"name.jobTitle":         (*gofakeit.Faker).JobTitle,
	"internet.email":        (*gofakeit.Faker).Email,
	"internet.userName":     (*gofakeit.Faker).Username,
	"internet.url":          (*gofakeit.Faker).URL,
	"internet.domainName":   (*gofakeit.Faker).DomainName,
	"internet.ip":           (*gofakeit.Faker).IPv4Address,
	"internet.ipv6":         (*gofakeit.Faker).IPv6Address,
	"internet.color":        (*gofakeit.Faker).HexColor,
	"phone.phoneNumber":     (*gofakeit.Faker).Phone,
	"company.companyName":   (*gofakeit.Faker).Company,
	"lorem.word":            (*gofakeit.Faker).Word,
	"lorem.sentence":        func(f *gofakeit.Faker) string { return f.Sentence(6) },
	"random.uuid":           (*gofakeit.Faker).UUID,
}

// FakerNames lists the supported faker names, sorted.
func FakerNames() []string {
	names := make([]string, 0, len(fakers))
	for n := range fakers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
