package cachez

// Driver identifies where a cached result lives.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverFile   Driver = "file"
	DriverRedis  Driver = "redis"
	DriverSQL    Driver = "sql"
	DriverNATS   Driver = "nats"
	DriverDynamo Driver = "dynamodb"
	DriverFake   Driver = "fake"
)
