package mocks

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Repository --dir ../domain/calljob --output domain/calljob --outpkg calljobmock --filename repository_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Repository --dir ../domain/provider --output domain/provider --outpkg providermock --filename repository_mock.go
