package cachez

// Stub clients for the backend contract tests in package cachez_test.

func NewStubRedisClient() RedisClient { return newStubRedisClient() }

func NewStubNATSKeyValue() NATSKeyValue { return newStubNATSKeyValue("cachez") }

func NewStubDynamo() DynamoAPI { return newDynStub() }
