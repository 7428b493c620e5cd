package billing

const createSubscriptionMutation = `
mutation appSubscriptionCreate($name: String!, $lineItems: [AppSubscriptionLineItemInput!]!, $test: Boolean, $trialDays: Int, $returnUrl: URL!) {
  appSubscriptionCreate(name: $name, lineItems: $lineItems, test: $test, trialDays: $trialDays, returnUrl: $returnUrl) {
    appSubscription {
      id
      status
      lineItems {
        id
        plan {
          pricingDetails {
            __typename
          }
        }
      }
    }
    confirmationUrl
    userErrors {
      field
      message
    }
  }
}`

const createUsageRecordMutation = `
mutation appUsageRecordCreate($subscriptionLineItemId: ID!, $price: MoneyInput!, $description: String!, $idempotencyKey: String) {
  appUsageRecordCreate(subscriptionLineItemId: $subscriptionLineItemId, price: $price, description: $description, idempotencyKey: $idempotencyKey) {
    appUsageRecord {
      id
    }
    userErrors {
      field
      message
    }
  }
}`

const subscriptionQuery = `
query appSubscription($id: ID!) {
  node(id: $id) {
    ... on AppSubscription {
      id
      status
      test
    }
  }
}`

const shopQuery = `
query shop {
  shop {
    name
    email
    myshopifyDomain
    plan {
      displayName
    }
  }
}`
