package app

// Version is overridden at build time:
//
//	go build -ldflags "-X github.com/dyike/RightOfWay/pkg/app.Version=v1.2.0"
var Version = "dev"
